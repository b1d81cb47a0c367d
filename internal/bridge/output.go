package bridge

// route is the output subscription handler. It writes each chunk straight to
// the display; ordering is whatever order the transport delivers in.
func (b *Bridge) route(payload []byte) {
	if b.isClosed() {
		return
	}
	b.logger.Debug("output", "bytes", len(payload))
	if _, err := b.display.Write(payload); err != nil {
		b.logger.Warn("display write failed", "err", err)
	}
}
