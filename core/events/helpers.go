package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
)

func addrHex(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func wordHex(word [32]byte) string {
	return "0x" + hex.EncodeToString(word[:])
}

func amountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
