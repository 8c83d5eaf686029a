// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proxy

import "time"

func defaultTimeNow() time.Time { return time.Now() }
