package power

import (
	"context"
	"fmt"
	"net"
)

// WakeSender broadcasts wake-on-LAN magic packets.
type WakeSender struct {
	mac       net.HardwareAddr
	broadcast string // host:port, conventionally port 9
}

// NewWakeSender parses the target MAC and broadcast address.
func NewWakeSender(mac, broadcast string) (*WakeSender, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("parse mac %q: %w", mac, err)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("mac %q: want 6 bytes, got %d", mac, len(hw))
	}
	return &WakeSender{mac: hw, broadcast: net.JoinHostPort(broadcast, "9")}, nil
}

// Send broadcasts one magic packet to the configured address.
func (w *WakeSender) Send(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", w.broadcast)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.broadcast, err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write(magicPacket(w.mac)); err != nil {
		return fmt.Errorf("send magic packet: %w", err)
	}
	return nil
}

// magicPacket builds the WOL payload: six 0xFF bytes followed by the MAC
// repeated sixteen times.
func magicPacket(mac net.HardwareAddr) []byte {
	packet := make([]byte, 0, 6+16*6)
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, mac...)
	}
	return packet
}
