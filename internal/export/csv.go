// Package export renders spin history for offline analysis.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sentinel/ledger/internal/domain"
)

// SpinHeader is the first row of every spins CSV.
var SpinHeader = []string{
	"spin_id", "session_id", "spin_number", "bet_type", "bet_target",
	"bet_amount", "win_amount", "net", "bank_after_spin", "is_zero", "spin_time",
}

// WriteSpinsCSV writes a header row and one row per spin. NULL columns are
// written as empty cells; times are RFC 3339 in UTC.
func WriteSpinsCSV(w io.Writer, spins []domain.Spin) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SpinHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range spins {
		if err := cw.Write(spinRecord(&spins[i])); err != nil {
			return fmt.Errorf("write spin %d: %w", spins[i].SpinID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func spinRecord(sp *domain.Spin) []string {
	return []string{
		strconv.FormatInt(sp.SpinID, 10),
		strconv.FormatInt(sp.SessionID, 10),
		optionalInt(sp.SpinNumber),
		optionalString(sp.BetType),
		optionalString(sp.BetTarget),
		sp.BetAmount.StringFixed(2),
		sp.WinAmount.StringFixed(2),
		sp.Net().StringFixed(2),
		sp.BankAfterSpin.StringFixed(2),
		strconv.FormatBool(sp.IsZero()),
		sp.SpinTime.UTC().Format(time.RFC3339Nano),
	}
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
