package sensors

import "testing"

func TestRegisterAndLookup(t *testing.T) {
	if _, ok := Lookup(Baro); ok {
		t.Error("Lookup returned a queue for an unregistered channel")
	}

	q := make(chan MagData, 1)
	Register(Mag, q)

	got, ok := Lookup(Mag)
	if !ok {
		t.Fatal("Lookup failed after Register")
	}
	if got.(chan MagData) != q {
		t.Error("Lookup returned a different queue")
	}

	mq, ok := MagQueue()
	if !ok {
		t.Fatal("MagQueue failed after Register")
	}
	q <- MagData{X: 1, Y: 2, Z: 3}
	data := <-mq
	if data.X != 1 || data.Y != 2 || data.Z != 3 {
		t.Errorf("received %+v through the directory", data)
	}
}

func TestRegisterReplaces(t *testing.T) {
	q1 := make(chan MagData, 1)
	q2 := make(chan MagData, 1)
	Register(Mag, q1)
	Register(Mag, q2)

	got, _ := Lookup(Mag)
	if got.(chan MagData) != q2 {
		t.Error("re-registering did not replace the queue")
	}
}
