//go:build !uhd

package sdr

// OpenUHD is unavailable without the uhd build tag.
func OpenUHD(args string) (Radio, error) {
	return nil, ErrUnsupported
}
