package security

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	SetArgon2Params(Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	os.Exit(m.Run())
}
