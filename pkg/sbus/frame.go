package sbus

// Frame layout
const (
	FrameSize   = 25
	StartByte   = 0x0F
	EndByte     = 0x00
	NumChannels = 16
	ChannelBits = 11

	flagCh17      = 0x01
	flagCh18      = 0x02
	flagFrameLost = 0x04
	flagFailsafe  = 0x08
)

// IsEndByte accepts the SBUS end marker and the SBUS2 telemetry slot
// markers 0x04, 0x14, 0x24 and 0x34.
func IsEndByte(b byte) bool {
	return b == EndByte || b&0x0F == 0x04
}

// Frame is one decoded radio frame.
type Frame struct {
	Channels  [NumChannels]uint16
	Ch17      bool
	Ch18      bool
	FrameLost bool
	Failsafe  bool
}

// Unpack decodes a complete raw frame without validating markers.
// Channel k occupies bits [11k, 11k+11) of bytes 1..22, least
// significant bit first.
func Unpack(raw *[FrameSize]byte, f *Frame) {
	var acc uint32
	var bits uint
	pos := 1
	for ch := 0; ch < NumChannels; ch++ {
		for bits < ChannelBits {
			acc |= uint32(raw[pos]) << bits
			pos++
			bits += 8
		}
		f.Channels[ch] = uint16(acc & 0x7ff)
		acc >>= ChannelBits
		bits -= ChannelBits
	}
	flags := raw[23]
	f.Ch17 = flags&flagCh17 != 0
	f.Ch18 = flags&flagCh18 != 0
	f.FrameLost = flags&flagFrameLost != 0
	f.Failsafe = flags&flagFailsafe != 0
}

// Pack encodes f into a raw frame.
func Pack(f *Frame) (raw [FrameSize]byte) {
	raw[0] = StartByte
	var acc uint32
	var bits uint
	pos := 1
	for ch := 0; ch < NumChannels; ch++ {
		acc |= uint32(f.Channels[ch]&0x7ff) << bits
		bits += ChannelBits
		for bits >= 8 {
			raw[pos] = byte(acc)
			pos++
			acc >>= 8
			bits -= 8
		}
	}
	if f.Ch17 {
		raw[23] |= flagCh17
	}
	if f.Ch18 {
		raw[23] |= flagCh18
	}
	if f.FrameLost {
		raw[23] |= flagFrameLost
	}
	if f.Failsafe {
		raw[23] |= flagFailsafe
	}
	raw[24] = EndByte
	return
}
