package drive

import "sync"

// FakeDrive is an in-memory DriveIntf used by tests and by pkg/eval example
// programs that want to exercise the session/method stack without real
// hardware. IFSend/IFRecv are backed by a Handler callback so a test can
// script arbitrary TPer responses.
type FakeDrive struct {
	mu      sync.Mutex
	ident   Identity
	serial  []byte
	closed  bool
	Handler func(proto SecurityProtocol, comID uint16, data []byte) ([]byte, error)
}

// NewFakeDrive returns a FakeDrive identifying itself as ident, with no
// handler installed; callers should set Handler before use.
func NewFakeDrive(ident Identity) *FakeDrive {
	return &FakeDrive{ident: ident}
}

func (f *FakeDrive) IFSend(proto SecurityProtocol, sps uint16, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrDeviceNotSupported
	}
	if f.Handler == nil {
		return nil
	}
	_, err := f.Handler(proto, sps, data)
	return err
}

func (f *FakeDrive) IFRecv(proto SecurityProtocol, sps uint16, data *[]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrDeviceNotSupported
	}
	if f.Handler == nil {
		return nil
	}
	resp, err := f.Handler(proto, sps, nil)
	if err != nil {
		return err
	}
	n := copy(*data, resp)
	for i := n; i < len(*data); i++ {
		(*data)[i] = 0
	}
	return nil
}

func (f *FakeDrive) Identify() (*Identity, error) {
	id := f.ident
	return &id, nil
}

func (f *FakeDrive) SerialNumber() ([]byte, error) {
	return f.serial, nil
}

func (f *FakeDrive) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
