package transfer

import "io"

// ProgressWriter reports download progress as a response body is written
// to its destination.
type ProgressWriter struct {
	// destination receives the downloaded bytes.
	destination io.Writer

	// len is the length of the payload being downloaded.
	//
	// Zero when the transport did not report a computable total.
	len int64

	// written is the number of bytes written to the destination.
	written int64

	// callback is the callback to execute on progress updates.
	callback func(processed, total int64)
}

func NewProgressWriter(
	destination io.Writer,
	size int64,
	callback func(processed, total int64),
) *ProgressWriter {
	return &ProgressWriter{
		destination: destination,
		len:         size,
		callback:    callback,
	}
}

// Write implements io.Writer.Write.
func (pw *ProgressWriter) Write(p []byte) (n int, err error) {
	n, err = pw.destination.Write(p)
	pw.written += int64(n)
	if err != nil {
		return n, err
	}

	if pw.callback != nil {
		pw.callback(pw.written, pw.len)
	}

	return n, nil
}
