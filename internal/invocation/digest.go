// digest.go — canonical digest used as the broker registry's map key.
// A length-prefixed encoding of every field (so no delimiter collision
// is possible) is cheaper and safer here than a non-cryptographic hash
// with collision risk: the digest IS the key, compared for exact
// string equality, not hashed further.
package invocation

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/heutelbeck/attribute-stream-broker/internal/attrvalue"
)

// Digest returns the canonical key for i. Two invocations are equal
// (per Equal) if and only if their digests match.
func (i *Invocation) Digest() string {
	var b strings.Builder
	writeLP(&b, i.name)

	if e, ok := i.Entity(); ok {
		b.WriteString("E")
		writeValue(&b, e)
	} else {
		b.WriteString("e")
	}

	fmt.Fprintf(&b, "a%d:", len(i.arguments))
	for _, a := range i.arguments {
		writeValue(&b, a)
	}

	fmt.Fprintf(&b, "v%d:", len(i.variableOrder))
	for _, k := range i.variableOrder {
		writeLP(&b, k)
		writeValue(&b, i.variables[k])
	}

	fmt.Fprintf(&b, "t%d,%d,%d,%d;",
		i.initialTimeout, i.pollInterval, i.backoff, i.retryLimit)

	return b.String()
}

// canonicalNumber reduces n's (coefficient, exponent) pair to its
// minimal form by dividing out trailing zeros from the coefficient.
// decimal.Decimal.Equal compares numeric value, not representation
// (1 and 1.0 are Equal despite differing scale), so the digest must
// normalize to that same canonical form or two Equal invocations could
// hash to different digests.
func canonicalNumber(n decimal.Decimal) (*big.Int, int32) {
	coeff := new(big.Int).Set(n.Coefficient())
	exp := n.Exponent()

	ten := big.NewInt(10)
	rem := new(big.Int)
	for coeff.Sign() != 0 {
		rem.Mod(coeff, ten)
		if rem.Sign() != 0 {
			break
		}
		coeff.Quo(coeff, ten)
		exp++
	}
	if coeff.Sign() == 0 {
		exp = 0
	}
	return coeff, exp
}

func writeLP(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

func writeValue(b *strings.Builder, v attrvalue.Value) {
	switch v.Kind() {
	case attrvalue.KindUndefined:
		b.WriteString("U")
	case attrvalue.KindNull:
		b.WriteString("N")
	case attrvalue.KindBool:
		bv, _ := v.AsBool()
		if bv {
			b.WriteString("Bt")
		} else {
			b.WriteString("Bf")
		}
	case attrvalue.KindNumber:
		n, _ := v.AsNumber()
		coeff, exp := canonicalNumber(n)
		b.WriteString("D")
		fmt.Fprintf(b, "%d,", exp)
		writeLP(b, coeff.String())
	case attrvalue.KindText:
		s, _ := v.AsText()
		b.WriteString("T")
		writeLP(b, s)
	case attrvalue.KindError:
		s, _ := v.AsError()
		b.WriteString("X")
		writeLP(b, s)
	case attrvalue.KindArray:
		arr, _ := v.AsArray()
		fmt.Fprintf(b, "A%d:", len(arr))
		for _, e := range arr {
			writeValue(b, e)
		}
	case attrvalue.KindObject:
		obj, _ := v.AsObject()
		keys := obj.Keys()
		fmt.Fprintf(b, "O%d:", len(keys))
		for _, k := range keys {
			writeLP(b, k)
			ev, _ := obj.Get(k)
			writeValue(b, ev)
		}
	}
}
