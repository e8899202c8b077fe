package hub

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLen     = 6
)

func GenerateCode() (string, error) {
	code := make([]byte, codeLen)
	for i := 0; i < codeLen; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}

// ValidCode reports whether code could have come from GenerateCode.
func ValidCode(code string) bool {
	if len(code) != codeLen {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(codeCharset, c) {
			return false
		}
	}
	return true
}
