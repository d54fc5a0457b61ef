package protocoltest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"pikoder-service/internal/model"
)

// Simulator answers the PiKoder ASCII command set from in-memory state.
// Pulse values are stored in microseconds and scaled on the wire when HP
// is set.
type Simulator struct {
	mu sync.Mutex

	Status      string
	Firmware    string
	AuxFirmware string
	HP          bool

	Pulse   [model.MaxChannel + 1]int
	Neutral [model.MaxChannel + 1]int
	Lower   [model.MaxChannel + 1]int
	Upper   [model.MaxChannel + 1]int
	IO      [model.MaxChannel + 1]string

	Timeout    int
	ZeroOffset int
	I2CAddress int
	PPM        string

	// Saves records every save command
	Saves []string
	// Binary records every 4-byte legacy frame
	Binary [][]byte
	// Silent drops the next n replies to a command
	Silent map[string]int
	// Script answers a command with queued replies before the state machine
	Script map[string][]string
	// Reject makes set commands answer without "!"
	Reject map[string]bool
}

// NewSimulator returns a device of family running firmware with every
// channel at 1500us and limits 750..2250.
func NewSimulator(family model.Family, firmware string) *Simulator {
	s := &Simulator{
		Status:      "PiKoder/" + family.String() + " T=0100",
		Firmware:    firmware,
		AuxFirmware: "1.0",
		HP:          family == model.FamilySSCHP,
		Timeout:     100,
		PPM:         "8N",
		Silent:      map[string]int{},
		Script:      map[string][]string{},
		Reject:      map[string]bool{},
	}
	for ch := model.MinChannel; ch <= model.MaxChannel; ch++ {
		s.Pulse[ch] = model.FactoryDefaultPulse
		s.Neutral[ch] = model.FactoryDefaultPulse
		s.Lower[ch] = 750
		s.Upper[ch] = 2250
		s.IO[ch] = "P"
	}
	return s
}

// Link returns a scripted link of kind wired to the simulator
func (s *Simulator) Link(kind model.LinkType) *Link {
	return NewLink(kind, s.Respond)
}

// Respond implements Responder
func (s *Simulator) Respond(frame []byte) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(frame) == 4 && frame[0] == 83 {
		s.Binary = append(s.Binary, append([]byte(nil), frame...))
		return "", false
	}

	cmd := string(frame)
	if n := s.Silent[cmd]; n > 0 {
		s.Silent[cmd] = n - 1
		return "", false
	}
	if q := s.Script[cmd]; len(q) > 0 {
		s.Script[cmd] = q[1:]
		return q[0], true
	}

	switch cmd {
	case "*":
		return "?", true
	case "0":
		return s.Firmware, true
	case "?":
		return s.Status, true
	case "$":
		return s.AuxFirmware, true
	case "S", "SU]U]":
		s.Saves = append(s.Saves, cmd)
		return s.ack(cmd), true
	case "T?":
		return fmt.Sprintf("%03d", s.Timeout), true
	case "M?":
		return fmt.Sprintf("%03d", s.ZeroOffset), true
	case "I?":
		return fmt.Sprintf("%02d", s.I2CAddress), true
	case "P?":
		return s.PPM, true
	}

	if name, value, ok := strings.Cut(cmd, "="); ok {
		return s.set(cmd, name, value)
	}
	if name, ok := strings.CutSuffix(cmd, "?"); ok {
		return s.get(name)
	}
	return "?", true
}

func (s *Simulator) ack(cmd string) string {
	if s.Reject[cmd] {
		return "?"
	}
	return "!"
}

// channelRegister resolves "<prefix><ch>" to a pulse register
func (s *Simulator) channelRegister(name string) (*[model.MaxChannel + 1]int, int, bool) {
	reg := &s.Pulse
	if name != "" {
		switch name[0] {
		case 'N':
			reg, name = &s.Neutral, name[1:]
		case 'L':
			reg, name = &s.Lower, name[1:]
		case 'U':
			reg, name = &s.Upper, name[1:]
		}
	}
	ch, err := strconv.Atoi(name)
	if err != nil || ch < model.MinChannel || ch > model.MaxChannel {
		return nil, 0, false
	}
	return reg, ch, true
}

func (s *Simulator) get(name string) (string, bool) {
	if strings.HasPrefix(name, "O") {
		ch, err := strconv.Atoi(name[1:])
		if err != nil || ch < model.MinChannel || ch > model.MaxChannel {
			return "?", true
		}
		return s.IO[ch], true
	}
	reg, ch, ok := s.channelRegister(name)
	if !ok {
		return "?", true
	}
	if s.HP {
		return fmt.Sprintf("%05d", reg[ch]*5), true
	}
	return fmt.Sprintf("%04d", reg[ch]), true
}

func (s *Simulator) set(cmd, name, value string) (string, bool) {
	n, numErr := strconv.Atoi(value)
	switch name {
	case "T":
		if numErr != nil {
			return "?", true
		}
		s.Timeout = n
		return s.ack(cmd), true
	case "M":
		if numErr != nil {
			return "?", true
		}
		s.ZeroOffset = n
		return s.ack(cmd), true
	case "I":
		if numErr != nil {
			return "?", true
		}
		s.I2CAddress = n
		return s.ack(cmd), true
	case "P":
		s.PPM = value
		return s.ack(cmd), true
	}

	if strings.HasPrefix(name, "O") {
		ch, err := strconv.Atoi(name[1:])
		if err != nil || ch < model.MinChannel || ch > model.MaxChannel {
			return "?", true
		}
		s.IO[ch] = value
		return s.ack(cmd), true
	}

	reg, ch, ok := s.channelRegister(name)
	if !ok || numErr != nil {
		return "?", true
	}
	if s.HP {
		n /= 5
	}
	reg[ch] = n
	return s.ack(cmd), true
}

// Do runs f with the simulator state locked
func (s *Simulator) Do(f func(s *Simulator)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s)
}
