package logger

import (
	"fmt"

	"github.com/tarm/serial"
)

// OpenSerial открывает последовательную консоль для вывода логов (аналог Serial.printf прошивки).
// Результат передаётся в Options.Writer; закрывать при выходе.
func OpenSerial(device string, baud int) (*serial.Port, error) {
	if baud == 0 {
		baud = 115200
	}
	p, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", device, err)
	}
	return p, nil
}
