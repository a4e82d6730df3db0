// Copyright 2024 The lessync Authors
// This file is part of the lessync library.
//
// The lessync library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The lessync library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the lessync library. If not, see <http://www.gnu.org/licenses/>.

// Package lessync implements the core of a LES (Light Ethereum Subprotocol)
// light-client chain synchronizer: it keeps a header-only local chain in
// sync with remote peers and services on-demand header/body/receipt/account/
// code lookups against peers. Header and account answers are verified
// against the header chain it already trusts; bodies, receipts and code
// are taken from the peer unverified.
//
// The underlying p2p transport, header database and EVM validation rules
// are supplied by the embedder; this package only ever sees them through
// the Peer and headerdb.Database interfaces and the HeaderValidator
// function type.
package lessync
