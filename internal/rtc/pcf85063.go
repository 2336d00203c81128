package rtc

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Адрес и регистры PCF85063A (Inkplate 10).
const (
	PCF85063Addr uint16 = 0x51

	regSeconds = 0x04 // 0x04..0x0A: сек, мин, час, день, день недели, месяц, год (BCD)
	osFlag     = 0x80 // бит 7 регистра секунд: генератор останавливался, время недостоверно
	timeRegs   = 7
)

// ErrEpochRange — время вне диапазона, который хранит чип (2000..2099).
var ErrEpochRange = errors.New("rtc: epoch outside 2000..2099")

// PCF85063 — драйвер RTC на шине I2C (periph.io).
type PCF85063 struct {
	dev *i2c.Dev
	bus i2c.BusCloser // nil, если шина передана снаружи
}

var _ Chip = (*PCF85063)(nil)

// NewPCF85063 оборачивает уже открытую шину.
func NewPCF85063(bus i2c.Bus, addr uint16) *PCF85063 {
	if addr == 0 {
		addr = PCF85063Addr
	}
	return &PCF85063{dev: &i2c.Dev{Addr: addr, Bus: bus}}
}

// OpenPCF85063 инициализирует periph host, открывает шину name ("" = первая доступная) и
// возвращает драйвер, владеющий шиной.
func OpenPCF85063(name string, addr uint16) (*PCF85063, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("i2creg.Open %q: %w", name, err)
	}
	p := NewPCF85063(bus, addr)
	p.bus = bus
	return p, nil
}

// Close закрывает шину, если драйвер её открывал.
func (p *PCF85063) Close() error {
	if p.bus == nil {
		return nil
	}
	return p.bus.Close()
}

func (p *PCF85063) ReadEpoch() (uint32, error) {
	buf := make([]byte, timeRegs)
	if err := p.dev.Tx([]byte{regSeconds}, buf); err != nil {
		return 0, fmt.Errorf("pcf85063 read: %w", err)
	}
	t := time.Date(
		2000+fromBCD(buf[6]),
		time.Month(fromBCD(buf[5]&0x1f)),
		fromBCD(buf[3]&0x3f),
		fromBCD(buf[2]&0x3f),
		fromBCD(buf[1]&0x7f),
		fromBCD(buf[0]&0x7f),
		0, time.UTC)
	return uint32(t.Unix()), nil
}

func (p *PCF85063) WriteEpoch(epoch uint32) error {
	t := time.Unix(int64(epoch), 0).UTC()
	if t.Year() < 2000 || t.Year() > 2099 {
		return fmt.Errorf("%w: %d", ErrEpochRange, epoch)
	}
	// запись секунд с нулевым битом 7 сбрасывает OS
	w := []byte{
		regSeconds,
		toBCD(t.Second()),
		toBCD(t.Minute()),
		toBCD(t.Hour()),
		toBCD(t.Day()),
		byte(t.Weekday()),
		toBCD(int(t.Month())),
		toBCD(t.Year() - 2000),
	}
	if err := p.dev.Tx(w, nil); err != nil {
		return fmt.Errorf("pcf85063 write: %w", err)
	}
	return nil
}

func (p *PCF85063) IsSet() (bool, error) {
	buf := make([]byte, 1)
	if err := p.dev.Tx([]byte{regSeconds}, buf); err != nil {
		return false, fmt.Errorf("pcf85063 read: %w", err)
	}
	return buf[0]&osFlag == 0, nil
}

func toBCD(v int) byte {
	return byte(v/10<<4 | v%10)
}

func fromBCD(b byte) int {
	return int(b>>4)*10 + int(b&0x0f)
}
