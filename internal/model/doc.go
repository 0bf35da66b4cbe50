// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the conversation
// components.
//
// # Key Types
//
//   - Message: one rendered entry; its Payload is either PlainPayload or
//     StructuredPayload
//   - ModelStatus: availability of the on-device model
//   - EphemeralStatus: transient received/sent/thinking indicator
//   - ConversationContext: user name and accumulated TopicSet
package model
