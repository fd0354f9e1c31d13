// Package database defines the connection contract that the async worker
// pool executes against, along with the statement, parameter and result
// types exchanged between the pool and driver implementations.
package database
