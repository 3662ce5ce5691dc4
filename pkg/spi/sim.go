// In-memory SPI connection for tests.
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package spi

import "fmt"

// SimConn records every transfer and plays back scripted responses.
// Responses are consumed in order; a transfer past the end of the
// script reads all zeros.
type SimConn struct {
	// Writes holds the outgoing bytes of every Exchange, in order.
	Writes [][]byte

	// Responses are copied into the read buffer of successive
	// transfers. Shorter responses leave the remaining bytes zero.
	Responses [][]byte

	// Err, when set, fails the next Exchange and is then cleared.
	Err error

	next   int
	closed bool
}

// NewSimConn creates a connection with the given scripted responses.
func NewSimConn(responses ...[]byte) *SimConn {
	return &SimConn{Responses: responses}
}

func (c *SimConn) Exchange(w, r []byte) error {
	if c.closed {
		return fmt.Errorf("spisim: exchange on closed connection")
	}
	if c.Err != nil {
		err := c.Err
		c.Err = nil
		return err
	}
	c.Writes = append(c.Writes, append([]byte(nil), w...))
	if r != nil {
		for i := range r {
			r[i] = 0
		}
		if c.next < len(c.Responses) {
			copy(r, c.Responses[c.next])
		}
	}
	c.next++
	return nil
}

func (c *SimConn) Close() error {
	if c.closed {
		return fmt.Errorf("spisim: double close")
	}
	c.closed = true
	return nil
}

// LastWrite returns the outgoing bytes of the most recent transfer.
func (c *SimConn) LastWrite() []byte {
	if len(c.Writes) == 0 {
		return nil
	}
	return c.Writes[len(c.Writes)-1]
}
