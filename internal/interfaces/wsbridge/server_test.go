package wsbridge

import "testing"

func TestParseNotification(t *testing.T) {
	frame, ok := ParseNotification(`Weights:alpha:SFIF9001:20230924101900:0.5:3500:{"src":"t"}`)
	if !ok {
		t.Fatal("parse failed")
	}
	if frame.Strategy != "alpha" || frame.Symbol != "SFIF9001" {
		t.Errorf("identity = %s/%s", frame.Strategy, frame.Symbol)
	}
	if frame.Dt != "2023-09-24 10:19:00" {
		t.Errorf("dt = %q", frame.Dt)
	}
	if frame.Weight != "0.5" || frame.Price != "3500" {
		t.Errorf("weight/price = %s/%s", frame.Weight, frame.Price)
	}
	// the ref payload keeps its own colons
	if frame.Ref != `{"src":"t"}` {
		t.Errorf("ref = %q", frame.Ref)
	}
}

func TestParseNotificationRejectsShortPayload(t *testing.T) {
	if _, ok := ParseNotification("Weights:alpha:SFIF9001"); ok {
		t.Fatal("short payload accepted")
	}
	if _, ok := ParseNotification("Weights:alpha:SFIF9001:LAST:0.5:0:{}"); ok {
		t.Fatal("non-stamp segment accepted")
	}
}
