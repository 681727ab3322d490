// Package domain contains the entities shared between the load generator and
// its storage backends. They carry no infrastructure concerns.
package domain
