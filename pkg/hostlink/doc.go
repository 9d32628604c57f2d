// Package hostlink carries host packets over a byte stream.
package hostlink

// The host link connects the onboard controller with the autonomy
// computer over a serial port (or any byte stream in bench setups).
//
// Each frame is:
//
//   0x02 | len | payload (len bytes) | crc16 (2 bytes, little-endian) | 0x03
//
// The checksum is CRC-16/XMODEM over the payload. The first payload
// byte is the packet type id, see package packet.
// A frame failing any check is dropped and the parser waits for the
// next start byte. There are no retransmissions: every packet type is
// either periodic or answered, so a lost frame is recovered by the
// next one.
