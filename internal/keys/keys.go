// Package keys builds the composite partition and sort keys for the
// single-table layout.
package keys

import (
	"fmt"
	"strings"
)

// List items use the list id for both pk and sk so the partition's metadata
// row sorts before its products and reserved lines.
func List(listID string) (pk, sk string) {
	pk = fmt.Sprintf("LIST#%s", listID)
	return pk, pk
}

// Product returns the key of a product row within its list partition.
func Product(listID, productID string) (pk, sk string) {
	return fmt.Sprintf("LIST#%s", listID), fmt.Sprintf("PRODUCT#%s", productID)
}

// ReservedLine returns the key of one user's outstanding claim on a product.
func ReservedLine(listID, productID, userID string) (pk, sk string) {
	return fmt.Sprintf("LIST#%s", listID), fmt.Sprintf("RESERVED#%s#%s", productID, userID)
}

// ReservedLinePrefix returns the sort-key prefix that matches every reserved
// line for a product, for Query with begins_with.
func ReservedLinePrefix(productID string) string {
	return fmt.Sprintf("RESERVED#%s#", productID)
}

// Reservation returns the key of the globally addressable reservation record.
// The record lives in its own partition so an emailed link can resolve it
// without knowing the list.
func Reservation(reservationID string) (pk, sk string) {
	pk = fmt.Sprintf("RESERVATION#%s", reservationID)
	return pk, pk
}

// User returns the key of an account row, addressed by email.
func User(email string) (pk, sk string) {
	pk = fmt.Sprintf("USER#%s", strings.ToLower(email))
	return pk, pk
}

// SplitReservedLine extracts the product and user ids from a reserved line
// sort key. ok is false if the sort key is not a reserved line.
func SplitReservedLine(sk string) (productID, userID string, ok bool) {
	rest, found := strings.CutPrefix(sk, "RESERVED#")
	if !found {
		return "", "", false
	}
	productID, userID, found = strings.Cut(rest, "#")
	if !found || productID == "" || userID == "" {
		return "", "", false
	}
	return productID, userID, true
}

// SplitProduct extracts the product id from a product sort key.
func SplitProduct(sk string) (productID string, ok bool) {
	productID, ok = strings.CutPrefix(sk, "PRODUCT#")
	if !ok || productID == "" {
		return "", false
	}
	return productID, true
}
