package preview

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/exampleco/sensorcube/internal/cube"
	"github.com/exampleco/sensorcube/internal/epoch"
)

// Write prints the first n time steps of machine 0, feature 0 of arr.
func Write(w io.Writer, arr *cube.Array, n int) error {
	if n <= 0 {
		return fmt.Errorf("preview rows must be > 0, got %d", n)
	}
	shape := arr.Shape()
	if shape[0] == 0 || shape[1] == 0 || shape[2] == 0 {
		return fmt.Errorf("cannot preview empty array of shape %v", shape)
	}

	coords := arr.Coords()
	dims := arr.Dims()
	series := arr.Series(0, 0, n)

	fmt.Fprintf(w, "<labeled array (%s: %d)>\n", dims[0], len(series))

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{dims[0], "utc", "value"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for t, v := range series {
		ts := coords.Times[t]
		table.Append([]string{
			strconv.FormatInt(ts, 10),
			epoch.ToTime(ts).Format("2006-01-02T15:04:05.000000000Z"),
			formatValue(v),
		})
	}
	table.Render()

	fmt.Fprintln(w, "Coordinates:")
	fmt.Fprintf(w, "    %-10s  %s\n", dims[1], coords.Machines[0])
	fmt.Fprintf(w, "    %-10s  %s\n", dims[2], coords.Features[0])
	fmt.Fprintf(w, "Shape: %s=%d %s=%d %s=%d\n", dims[0], shape[0], dims[1], shape[1], dims[2], shape[2])
	return nil
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
