package bm

import "strconv"

func fmtInt(i int64) string    { return strconv.FormatInt(i, 10) }
func fmtUint(u uint64) string  { return strconv.FormatUint(u, 10) }
func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
