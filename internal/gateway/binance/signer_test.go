package binance

import "testing"

func TestSign_KnownVector(t *testing.T) {
	// Reference vector from the venue API documentation.
	signer := NewSigner(
		"vmPUZE6mv9SD5VNHk4HlWFsOr6aKE2zvsw0MuIgwCIPy6utIco14y7Ju91duEh8A",
		"NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j",
	)

	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"

	if got := signer.Sign(query); got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}

func TestSign_Deterministic(t *testing.T) {
	signer := NewSigner("key", "secret")

	a := signer.Sign("symbol=BTCUSDT")
	b := signer.Sign("symbol=BTCUSDT")
	if a != b {
		t.Errorf("Sign() not deterministic: %s != %s", a, b)
	}
	if a == signer.Sign("symbol=ETHUSDT") {
		t.Error("different payloads produced the same signature")
	}
}

func TestWipe(t *testing.T) {
	signer := NewSigner("key", "secret")
	before := signer.Sign("payload")
	signer.Wipe()
	if signer.Sign("payload") == before {
		t.Error("signature unchanged after Wipe")
	}

	// Wipe on nil must not panic.
	var nilSigner *Signer
	nilSigner.Wipe()
}

func TestAPIKey(t *testing.T) {
	signer := NewSigner("my-key", "secret")
	if signer.APIKey() != "my-key" {
		t.Errorf("APIKey() = %s, want my-key", signer.APIKey())
	}
}
