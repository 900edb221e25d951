package census

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
)

// TSVHeader returns the columns written by WritePopulationTSV.
func TSVHeader() []string {
	return append([]string{"FIPS", "NAME", "Population"}, BandLabels()...)
}

// WritePopulationTSV writes rows as the tab-separated population table read
// by the build.
func WritePopulationTSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(TSVHeader()); err != nil {
		return eris.Wrap(err, "census: write header")
	}
	for _, r := range rows {
		rec := []string{r.FIPS, r.Name, strconv.FormatInt(r.Population, 10)}
		for _, b := range AgeBands {
			rec = append(rec, strconv.FormatInt(r.Bands[b.Label], 10))
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrapf(err, "census: write %s", r.FIPS)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "census: flush")
}

// PopulationPath returns <dir>/<geo>_population.tsv.
func PopulationPath(dir string, geo Geography) string {
	return filepath.Join(dir, geo.Short()+"_population.tsv")
}

// WritePopulationFile writes rows to PopulationPath(dir, geo), creating dir.
func WritePopulationFile(dir string, geo Geography, rows []Row) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "census: create %s", dir)
	}
	path := PopulationPath(dir, geo)
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "census: create %s", path)
	}
	if err := WritePopulationTSV(f, rows); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, eris.Wrapf(f.Close(), "census: close %s", path)
}
