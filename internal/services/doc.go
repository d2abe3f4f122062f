// Package services holds the error taxonomy shared by the milltrack core
// components. Every invariant violation is rejected at the point of write
// with a sentinel marker; presentation layers map markers to stable kinds
// via Kind.
package services
