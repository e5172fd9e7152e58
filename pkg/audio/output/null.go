// ABOUTME: Null output driver
// ABOUTME: Accepts and discards everything
package output

type nullDriver struct {
	written int64
}

func newNull(cfg Config) (Driver, error) {
	return &nullDriver{}, nil
}

func (d *nullDriver) Write(p []byte) (int, error) {
	d.written += int64(len(p))
	return len(p), nil
}

func (d *nullDriver) Start() error        { return nil }
func (d *nullDriver) Stop() error         { return nil }
func (d *nullDriver) SetNonblocking(bool) {}
func (d *nullDriver) UseFloat() bool      { return false }
func (d *nullDriver) Close() error        { return nil }
