package census

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// TotalVariable is the B01001 total population estimate.
const TotalVariable = "B01001_001E"

// Band sums a group of B01001 sex-by-age cells. Male cells are 003-025 and
// female cells 027-049.
type Band struct {
	Label string
	Cells []int
}

// AgeBands lists the published bands in order.
var AgeBands = []Band{
	{"<18", []int{3, 4, 5, 6, 27, 28, 29, 30}},
	{"18-24", []int{7, 8, 9, 10, 31, 32, 33, 34}},
	{"25-29", []int{11, 35}},
	{"30-34", []int{12, 36}},
	{"35-39", []int{13, 37}},
	{"40-44", []int{14, 38}},
	{"45-49", []int{15, 39}},
	{"50-54", []int{16, 40}},
	{"55-59", []int{17, 41}},
	{"60-64", []int{18, 19, 42, 43}},
	{"65+", []int{20, 21, 22, 23, 24, 25, 44, 45, 46, 47, 48, 49}},
}

// BandLabels returns the labels of AgeBands in order.
func BandLabels() []string {
	out := make([]string, len(AgeBands))
	for i, b := range AgeBands {
		out[i] = b.Label
	}
	return out
}

func variable(cell int) string { return fmt.Sprintf("B01001_%03dE", cell) }

// Variables returns the estimate variables requested from the API: the total
// followed by every cell used by AgeBands in ascending order.
func Variables() []string {
	vars := []string{TotalVariable}
	for cell := 3; cell <= 49; cell++ {
		if cell == 26 {
			continue
		}
		vars = append(vars, variable(cell))
	}
	return vars
}

// Row is the population of one geography.
type Row struct {
	FIPS       string
	Name       string
	Population int64
	Bands      map[string]int64
}

// reduce builds a Row from one API record. idx maps response column names to
// positions.
func reduce(idx map[string]int, record []*string, geo Geography) (Row, error) {
	get := func(col string) (string, bool) {
		i, ok := idx[col]
		if !ok || i >= len(record) || record[i] == nil {
			return "", false
		}
		return *record[i], true
	}
	num := func(v string) (int64, error) {
		val, ok := get(v)
		if !ok {
			return 0, eris.Errorf("census: %s missing", v)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, eris.Wrapf(err, "census: %s", v)
		}
		// ACS annotates suppressed estimates with large negative sentinels.
		if n < 0 {
			return 0, eris.Errorf("census: %s has annotation %d", v, n)
		}
		return n, nil
	}

	var fips strings.Builder
	for _, col := range geo.codeColumns() {
		code, ok := get(col)
		if !ok {
			return Row{}, eris.Errorf("census: %q column missing", col)
		}
		fips.WriteString(code)
	}

	row := Row{FIPS: fips.String(), Bands: make(map[string]int64, len(AgeBands))}
	row.Name, _ = get("NAME")

	var err error
	if row.Population, err = num(TotalVariable); err != nil {
		return Row{}, err
	}
	for _, b := range AgeBands {
		var sum int64
		for _, cell := range b.Cells {
			n, err := num(variable(cell))
			if err != nil {
				return Row{}, err
			}
			sum += n
		}
		row.Bands[b.Label] = sum
	}
	return row, nil
}
