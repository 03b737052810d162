// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the poll(2) driven connection multiplexer. A Loop
// owns one listening socket and a fixed table of connection slots. It accepts
// peers into free slots, hands readable connections to a Handler and releases
// slots whose connections finished or were shut down elsewhere.
package reactor
