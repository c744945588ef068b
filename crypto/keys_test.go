package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func TestKeyToAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.Prefix() != NRVPrefix {
		t.Fatalf("unexpected prefix: %s", addr.Prefix())
	}
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(NRVPrefix)) {
		t.Fatalf("encoded address missing prefix: %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), addr.Bytes()) {
		t.Fatalf("round trip mismatch: %x != %x", decoded.Bytes(), addr.Bytes())
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if restored.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("restored key derives a different address")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-a-bech32-address"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDecodeAddressRejectsWrongPayloadLength(t *testing.T) {
	for _, size := range []int{0, 16, 32} {
		conv, err := bech32.ConvertBits(make([]byte, size), 8, 5, true)
		if err != nil {
			t.Fatalf("convert bits for %d-byte payload: %v", size, err)
		}
		encoded, err := bech32.Encode(string(NRVPrefix), conv)
		if err != nil {
			t.Fatalf("encode %d-byte payload: %v", size, err)
		}
		if _, err := DecodeAddress(encoded); err == nil {
			t.Fatalf("expected error decoding %d-byte payload %s", size, encoded)
		}
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	a := ModuleAddress("reserve/ledger")
	b := ModuleAddress("reserve/ledger")
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("module address not deterministic")
	}
	other := ModuleAddress("pool/manager")
	if bytes.Equal(a.Bytes(), other.Bytes()) {
		t.Fatalf("distinct module names collided")
	}
	if a.IsZero() {
		t.Fatalf("module address should not be zero")
	}
}
