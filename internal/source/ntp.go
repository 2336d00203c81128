package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// NTP epoch = 1900-01-01; до Unix epoch 2208988800 секунд.
const ntpEpochOffset = 2208988800

var (
	errNTPShort       = errors.New("ntp: short response")
	errNTPMode        = errors.New("ntp: response mode is not server (4)")
	errNTPOriginate   = errors.New("ntp: originate timestamp mismatch")
	errNTPUnsynced    = errors.New("ntp: server clock not synchronized")
	errNTPKissOfDeath = errors.New("ntp: kiss-o'-death")
	errNTPNegativeRTT = errors.New("ntp: negative RTT")
)

// NTP — источник времени по SNTPv4 (один запрос — время с сервера)
type NTP struct {
	host    string
	port    string
	timeout time.Duration
}

// NewNTP создаёт NTP источник; port "" = 123, timeout 0 = 5s.
func NewNTP(host, port string, timeout time.Duration) *NTP {
	if port == "" {
		port = "123"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NTP{host: host, port: port, timeout: timeout}
}

// Name возвращает имя источника
func (n *NTP) Name() string {
	return fmt.Sprintf("ntp:%s", n.host)
}

// Protocol возвращает протокол
func (n *NTP) Protocol() string {
	return "ntp"
}

// GetTime запрашивает время у сервера (RFC 4330): t1 = отправка, t2/t3 = приём/ответ сервера,
// t4 = приём ответа. Возвращает t4 + offset, offset = ((t2-t1)+(t3-t4))/2.
func (n *NTP) GetTime(ctx context.Context) (time.Time, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(n.host, n.port))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", n.Name(), err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	t1 := time.Now()
	if err := conn.SetDeadline(deadline(ctx, n.timeout)); err != nil {
		return time.Time{}, err
	}
	req := make([]byte, 48)
	req[0] = 0x23 // LI=0, VN=4, mode=3 (client)
	sec, frac := toNTP(t1)
	binary.BigEndian.PutUint32(req[40:44], sec)
	binary.BigEndian.PutUint32(req[44:48], frac)
	if _, err := conn.Write(req); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", n.Name(), err)
	}
	resp := make([]byte, 48)
	rn, err := conn.Read(resp)
	if err != nil {
		if ctx.Err() != nil {
			return time.Time{}, ctx.Err()
		}
		return time.Time{}, fmt.Errorf("%s: %w", n.Name(), err)
	}
	t4 := time.Now()
	if err := validate(resp[:rn], sec, frac); err != nil {
		return time.Time{}, err
	}
	if t4.Sub(t1) < 0 {
		return time.Time{}, errNTPNegativeRTT
	}
	t2 := fromNTP(resp[32:40])
	t3 := fromNTP(resp[40:48])
	offset := (t2.Sub(t1) + t3.Sub(t4)) / 2
	return t4.Add(offset).UTC(), nil
}

// Close не требует освобождения ресурсов
func (n *NTP) Close() error {
	return nil
}

func validate(resp []byte, sec, frac uint32) error {
	if len(resp) < 48 {
		return errNTPShort
	}
	if resp[0]&0x07 != 4 {
		return errNTPMode
	}
	if resp[0]>>6 == 3 {
		return errNTPUnsynced
	}
	if resp[1] == 0 {
		return fmt.Errorf("%w: %q", errNTPKissOfDeath, resp[12:16])
	}
	if binary.BigEndian.Uint32(resp[24:28]) != sec || binary.BigEndian.Uint32(resp[28:32]) != frac {
		return errNTPOriginate
	}
	if binary.BigEndian.Uint32(resp[40:44]) == 0 {
		return ErrUnavailable
	}
	return nil
}

func toNTP(t time.Time) (sec, frac uint32) {
	ns := t.UnixNano()
	sec = uint32(ns/1e9 + ntpEpochOffset)
	frac = uint32((ns % 1e9) << 32 / 1e9)
	return sec, frac
}

func fromNTP(b []byte) time.Time {
	sec := binary.BigEndian.Uint32(b[0:4])
	frac := binary.BigEndian.Uint32(b[4:8])
	ns := (int64(frac) * 1e9) >> 32
	return time.Unix(int64(sec)-ntpEpochOffset, ns).UTC()
}
