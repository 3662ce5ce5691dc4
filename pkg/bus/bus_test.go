package bus

import (
	"bytes"
	"testing"

	"adda-hat/pkg/errors"
	"adda-hat/pkg/gpio"
	"adda-hat/pkg/spi"
)

const testCSPin = 22

func newTestFramer(t *testing.T) (*Framer, *gpio.SimDriver, *spi.SimConn) {
	t.Helper()
	sim := gpio.NewSimDriver()
	ctrl := gpio.NewController(sim)
	if err := ctrl.Claim(testCSPin, gpio.Output); err != nil {
		t.Fatalf("claim cs: %v", err)
	}
	conn := spi.NewSimConn()
	return NewFramer(conn, ctrl, testCSPin), sim, conn
}

func TestTransactFramesSelect(t *testing.T) {
	f, sim, _ := newTestFramer(t)

	var levelDuringBody int
	err := f.Transact(func(conn spi.Conn) error {
		levelDuringBody = sim.Level(testCSPin)
		return conn.Exchange([]byte{0xFE}, nil)
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if levelDuringBody != 0 {
		t.Error("select line not asserted during body")
	}
	if sim.Level(testCSPin) != 1 {
		t.Error("select line not released after body")
	}
}

func TestTransactReleasesOnBodyError(t *testing.T) {
	f, sim, _ := newTestFramer(t)

	bodyErr := errors.New(errors.CodeConversionTimeout, "test", "boom")
	err := f.Transact(func(conn spi.Conn) error { return bodyErr })
	if err != bodyErr {
		t.Errorf("body error not propagated, got %v", err)
	}
	if sim.Level(testCSPin) != 1 {
		t.Error("select line left asserted after body error")
	}
}

func TestTransactReleasesOnPanic(t *testing.T) {
	f, sim, _ := newTestFramer(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic did not propagate")
			}
		}()
		f.Transact(func(conn spi.Conn) error { panic("converter wedged") })
	}()

	if sim.Level(testCSPin) != 1 {
		t.Error("select line left asserted after panic in body")
	}
}

func TestObserveCountsTransactions(t *testing.T) {
	f, _, _ := newTestFramer(t)

	var n int
	f.Observe(func() { n++ })

	f.Write([]byte{0xFC})
	f.Transact(func(conn spi.Conn) error {
		return errors.New(errors.CodeConversionTimeout, "test", "boom")
	})
	if n != 2 {
		t.Errorf("observed %d transactions, want 2", n)
	}

	// A transaction that never asserts the select line is not counted.
	sim := gpio.NewSimDriver()
	unclaimed := NewFramer(spi.NewSimConn(), gpio.NewController(sim), testCSPin)
	unclaimed.Observe(func() { n++ })
	unclaimed.Transact(func(conn spi.Conn) error { return nil })
	if n != 2 {
		t.Errorf("unclaimed select counted, n = %d", n)
	}
}

func TestTransactUnclaimedSelect(t *testing.T) {
	sim := gpio.NewSimDriver()
	ctrl := gpio.NewController(sim)
	f := NewFramer(spi.NewSimConn(), ctrl, testCSPin)

	ran := false
	err := f.Transact(func(conn spi.Conn) error { ran = true; return nil })
	if err == nil {
		t.Fatal("Transact should fail when the select line is not claimed")
	}
	if ran {
		t.Error("body ran without the select line asserted")
	}
}

func TestExchangeAndWrite(t *testing.T) {
	f, _, conn := newTestFramer(t)

	r := make([]byte, 2)
	conn.Responses = [][]byte{{0xAB, 0xCD}}
	if err := f.Exchange([]byte{0x10, 0x00}, r); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r, []byte{0xAB, 0xCD}) {
		t.Errorf("read = %v", r)
	}

	if err := f.Write([]byte{0x30, 0x80, 0x00}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(conn.LastWrite(), []byte{0x30, 0x80, 0x00}) {
		t.Errorf("wire bytes = %v", conn.LastWrite())
	}
}
