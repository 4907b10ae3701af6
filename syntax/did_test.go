package syntax

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInteropDIDsValid(t *testing.T) {
	assert := assert.New(t)
	file, err := os.Open("testdata/did_syntax_valid.txt")
	assert.NoError(err)
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		_, err := ParseDID(line)
		assert.NoError(err, line)
	}
	assert.NoError(scanner.Err())
}

func TestInteropDIDsInvalid(t *testing.T) {
	assert := assert.New(t)
	file, err := os.Open("testdata/did_syntax_invalid.txt")
	assert.NoError(err)
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		_, err := ParseDID(line)
		assert.Error(err, line)
		assert.True(errors.Is(err, ErrMalformedIdentifier), line)
	}
	assert.NoError(scanner.Err())
}

func TestDIDParts(t *testing.T) {
	assert := assert.New(t)
	d, err := ParseDID("did:iota:tst:0xabc123")
	assert.NoError(err)
	assert.Equal("iota", d.Method())
	assert.Equal("tst:0xabc123", d.Identifier())
	assert.Equal("did:iota:tst:0xabc123#key-1", d.WithFragment("#key-1"))
	assert.Equal("did:iota:tst:0xabc123#key-1", d.WithFragment("key-1"))
}

func TestDIDEmptyAndLong(t *testing.T) {
	assert := assert.New(t)
	_, err := ParseDID("")
	assert.ErrorIs(err, ErrMalformedIdentifier)
	_, err = ParseDID("did:example:" + strings.Repeat("a", 2048))
	assert.ErrorIs(err, ErrMalformedIdentifier)
}

func TestDIDText(t *testing.T) {
	assert := assert.New(t)
	var d DID
	assert.NoError(d.UnmarshalText([]byte("did:web:example.com")))
	assert.Equal(DID("did:web:example.com"), d)
	assert.Error(d.UnmarshalText([]byte("not-a-did")))
	b, err := d.MarshalText()
	assert.NoError(err)
	assert.Equal("did:web:example.com", string(b))
}
