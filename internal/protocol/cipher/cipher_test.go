package cipher

import (
	"strings"
	"testing"
)

func TestXORSelfInverse(t *testing.T) {
	key := strings.Repeat("a1", KeyLen/2)
	for _, msg := range []string{"", "the quick brown fox", "Send again", strings.Repeat("z", 64)} {
		enc := XOR(msg, key)
		if got := XOR(enc, key); got != msg {
			t.Fatalf("decrypt(encrypt(%q)) = %q", msg, got)
		}
	}
}

func TestXORChangesText(t *testing.T) {
	key := strings.Repeat("7", KeyLen)
	if XOR("hello", key) == "hello" {
		t.Fatalf("expected ciphertext to differ")
	}
	if got := XOR("0", "0"); got != "\x00" {
		t.Fatalf("expected zero character, got %q", got)
	}
}

func TestXORWrapsShortKey(t *testing.T) {
	if got := XOR("abcd", "\x01\x02"); got != "``bf" {
		t.Fatalf("unexpected short key output: %q", got)
	}
	if got := XOR("abc", ""); got != "abc" {
		t.Fatalf("empty key should be identity, got %q", got)
	}
}

func TestKeySetConsumesInOrder(t *testing.T) {
	ks := NewKeySet([]string{"k1", "k2", "k3"})
	for _, want := range []string{"k1", "k2", "k3"} {
		got, ok := ks.PopFront()
		if !ok || got != want {
			t.Fatalf("pop got=%q ok=%v want=%q", got, ok, want)
		}
	}
	if _, ok := ks.PopFront(); ok {
		t.Fatalf("expected exhausted keyset")
	}
	if ks.Len() != 0 {
		t.Fatalf("unexpected len=%d", ks.Len())
	}
}

func TestKeySetCopiesInput(t *testing.T) {
	in := []string{"k1", "k2"}
	ks := NewKeySet(in)
	in[0] = "mutated"
	if got, _ := ks.PopFront(); got != "k1" {
		t.Fatalf("keyset aliases caller slice: %q", got)
	}
}

func TestApplyFallsBackWhenExhausted(t *testing.T) {
	ks := NewKeySet(nil)
	out, ok := Apply(ks, "plain")
	if ok || out != "plain" {
		t.Fatalf("expected cleartext fallback, got=%q ok=%v", out, ok)
	}
	var nilSet *KeySet
	if _, ok := Apply(nilSet, "plain"); ok {
		t.Fatalf("nil keyset should report no keys")
	}
}

func TestApplyMatchingKeySetsRoundTrip(t *testing.T) {
	keys, err := GenerateKeySet(3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	sender := NewKeySet(keys)
	receiver := NewKeySet(keys)
	for _, msg := range []string{"one", "two words", "three little words"} {
		enc, ok := Apply(sender, msg)
		if !ok {
			t.Fatalf("sender out of keys")
		}
		dec, ok := Apply(receiver, enc)
		if !ok || dec != msg {
			t.Fatalf("round trip got=%q ok=%v want=%q", dec, ok, msg)
		}
	}
}

func TestGenerateKeySetShape(t *testing.T) {
	keys, err := GenerateKeySet(DefaultKeySetSize)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(keys) != DefaultKeySetSize {
		t.Fatalf("unexpected key count=%d", len(keys))
	}
	for i, k := range keys {
		if err := ValidateKey(k); err != nil {
			t.Fatalf("key[%d] invalid: %v", i, err)
		}
	}
}

func TestValidateKeyRejectsTerminator(t *testing.T) {
	if err := ValidateKey("."); err == nil {
		t.Fatalf("expected terminator to be rejected")
	}
	if err := ValidateKey(strings.Repeat("a", KeyLen-1)); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
}
