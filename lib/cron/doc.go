// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses cron expressions and computes the next
// occurrence after a given time. fingerd uses it to schedule the
// periodic tasks a finger interface registers (the scenario interface
// advances its fictional state every second).
//
// Supported syntax, five or six fields:
//
//	┌───────────── second (0-59, six-field form only)
//	│ ┌───────────── minute (0-59)
//	│ │ ┌───────────── hour (0-23)
//	│ │ │ ┌───────────── day of month (1-31)
//	│ │ │ │ ┌───────────── month (1-12)
//	│ │ │ │ │ ┌───────────── day of week (0-6, 0=Sunday)
//	│ │ │ │ │ │
//	* * * * * *
//
// A five-field expression fires at second 0 of each matching minute.
// Each field supports single values (5), ranges (1-5), lists (1,3,5),
// steps (*/15, 1-30/5) and the wildcard (*).
//
// All times are UTC. There are no @yearly shortcuts and no named days
// or months.
package cron
