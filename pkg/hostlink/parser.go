package hostlink

// Parser parses bytes received.
type Parser struct {
	state parseState
	buf   [MaxPayload]byte
	size  int
	n     int
	crc   uint16
}

// ParseResult indicates the result after one parsing step.
// At most one of Payload and Err is set.
type ParseResult struct {
	Payload []byte
	Err     error
}

type parseState int

const (
	stateStart   parseState = iota // waiting for StartByte
	stateLen                       // waiting for payload length
	statePayload                   // receiving payload
	stateCRCLo                     // waiting for checksum low byte
	stateCRCHi                     // waiting for checksum high byte
	stateEnd                       // waiting for EndByte
)

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state, p.size, p.n = stateStart, 0, 0
}

// Receiving indicates a frame is partially received.
func (p *Parser) Receiving() bool {
	return p.state != stateStart
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	switch p.state {
	case stateStart:
		if b == StartByte {
			p.state = stateLen
		}
	case stateLen:
		if b == 0 {
			return p.drop(ErrBadFrame)
		}
		p.size, p.n, p.state = int(b), 0, statePayload
	case statePayload:
		p.buf[p.n] = b
		if p.n++; p.n >= p.size {
			p.state = stateCRCLo
		}
	case stateCRCLo:
		p.crc, p.state = uint16(b), stateCRCHi
	case stateCRCHi:
		p.crc |= uint16(b) << 8
		p.state = stateEnd
	case stateEnd:
		if b != EndByte {
			pr = p.drop(ErrBadFrame)
			if b == StartByte {
				p.state = stateLen
			}
			return
		}
		p.state = stateStart
		payload := p.buf[:p.size]
		if CRC16(payload) != p.crc {
			pr.Err = ErrBadChecksum
			return
		}
		pr.Payload = append([]byte(nil), payload...)
	}
	return
}

func (p *Parser) drop(err error) ParseResult {
	p.Reset()
	return ParseResult{Err: err}
}
