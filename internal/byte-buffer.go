package internal

import "sync"

// formatBufPool recycles the scratch buffers used to format output
// records.
var formatBufPool = sync.Pool{New: func() interface{} {
	return []byte(nil)
}}

// ReserveByteBuffer fetches a length-0 byte slice from an internal
// pool; its capacity reflects earlier use. Return it with
// ReleaseByteBuffer once the formatted contents have been written out.
func ReserveByteBuffer() []byte {
	return formatBufPool.Get().([]byte)[:0]
}

// ReleaseByteBuffer returns a slice obtained from ReserveByteBuffer to
// the internal pool.
func ReleaseByteBuffer(buf []byte) {
	formatBufPool.Put(buf)
}
