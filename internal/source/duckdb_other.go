//go:build !darwin

package source

import "fmt"

func newDuckDB(Config) (Source, error) {
	return nil, fmt.Errorf("DuckDB support is only available on macOS")
}
