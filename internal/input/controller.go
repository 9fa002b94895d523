// Package input implements the two-controller bank behind $4016/$4017.
package input

import "github.com/golang/glog"

// Button identifies one pad button, in shift-register bit order.
type Button uint8

const (
	ButtonA Button = iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
)

var buttonNames = [8]string{"A", "B", "Select", "Start", "Up", "Down", "Left", "Right"}

func (b Button) String() string {
	if b < 8 {
		return buttonNames[b]
	}
	return "?"
}

// Controllers latches both pads' button state on strobe and serves serial reads.
//
// A $4016 write with bit 0 going 1->0 copies the live state into the shift
// registers. Each read returns bit 0 and shifts right with $80 filling in, so
// reads past the eighth return 1.
type Controllers struct {
	state [2]uint8
	shift [2]uint8

	strobe bool
}

// New creates an idle controller bank.
func New() *Controllers {
	return &Controllers{}
}

// SetButton updates the live state for player 1 or 2.
func (c *Controllers) SetButton(player int, button Button, pressed bool) {
	if player < 1 || player > 2 {
		return
	}
	glog.V(2).Infof("Player %d %s=%t", player, button, pressed)
	mask := uint8(1) << button
	if pressed {
		c.state[player-1] |= mask
	} else {
		c.state[player-1] &^= mask
	}
}

// SetButtons replaces the whole live state for one player.
func (c *Controllers) SetButtons(player int, buttons [8]bool) {
	if player < 1 || player > 2 {
		return
	}
	var state uint8
	for i, pressed := range buttons {
		if pressed {
			state |= 1 << i
		}
	}
	c.state[player-1] = state
}

// Write handles CPU writes to $4016.
func (c *Controllers) Write(value uint8) {
	strobe := value&0x01 != 0
	if c.strobe && !strobe {
		c.shift[0] = c.state[0]
		c.shift[1] = c.state[1]
		glog.V(2).Infof("Controller latch: p1=%08b p2=%08b", c.state[0], c.state[1])
	}
	c.strobe = strobe
}

// Read handles CPU reads of $4016 (player 1) or $4017 (player 2).
func (c *Controllers) Read(addr uint16) uint8 {
	port := addr - 0x4016
	if c.strobe {
		// While strobing, the shift register tracks the live A button.
		return c.state[port] & 0x01
	}
	ret := c.shift[port] & 0x01
	c.shift[port] = c.shift[port]>>1 | 0x80
	return ret
}
