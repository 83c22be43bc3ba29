package supervisor

import "os"

// endpoint owns one end of a pipe retained by the supervisor. The zero value
// is closed. Closing is idempotent: the first close releases the descriptor
// and replaces it with the nil sentinel, after which the slot is never
// reused until the next launch installs a fresh file.
type endpoint struct {
	file *os.File
}

func (e *endpoint) set(f *os.File) {
	e.file = f
}

func (e *endpoint) open() bool {
	return e.file != nil
}

func (e *endpoint) close() {
	if e.file == nil {
		return
	}
	e.file.Close()
	e.file = nil
}
