package csv

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/hed1ad/marketguard/pkg/fusion"
)

// Writer persists verdict rows as a flat CSV file, one row per aligned
// hourly bucket.
type Writer struct {
	file          *os.File
	writer        *csv.Writer
	withConsensus bool
}

// NewWriter creates the output file, truncating any previous run.
func NewWriter(filename string, withConsensus bool) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		file:          file,
		writer:        csv.NewWriter(file),
		withConsensus: withConsensus,
	}

	header := []string{"bucket", "density_score", "density_flag", "reconstruction_error", "reconstruction_flag"}
	if withConsensus {
		header = append(header, "consensus")
	}
	if err := w.writer.Write(header); err != nil {
		file.Close()
		return nil, err
	}

	return w, nil
}

// WriteAll outputs all verdicts of a run.
func (w *Writer) WriteAll(verdicts []fusion.Verdict) error {
	for _, v := range verdicts {
		record := []string{
			v.Bucket.Format(time.RFC3339),
			strconv.FormatFloat(v.DensityScore, 'g', -1, 64),
			strconv.Itoa(v.DensityFlag),
			strconv.FormatFloat(v.ReconstructionError, 'g', -1, 64),
			strconv.Itoa(v.ReconstructionFlag),
		}
		if w.withConsensus {
			record = append(record, strconv.Itoa(v.Consensus))
		}
		if err := w.writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (w *Writer) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
