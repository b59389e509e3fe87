package transport

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var auditHeader = []string{"time", "id", "payer", "signature", "submitted"}

// WriteAudit appends every event received on sub to a CSV file until sub is
// closed.
func WriteAudit(filename string, sub Subscriber) error {
	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "open audit file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	stat, err := file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat audit file")
	}
	if stat.Size() == 0 {
		if err := writer.Write(auditHeader); err != nil {
			return err
		}
	}

	for ev := range sub {
		record := []string{
			ev.Time.UTC().Format(time.RFC3339),
			ev.ID,
			ev.Payer,
			ev.Signature,
			strconv.FormatBool(ev.Submitted),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return errors.Wrap(err, "flush audit file")
		}
	}
	return nil
}
