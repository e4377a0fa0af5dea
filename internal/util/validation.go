// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import "regexp"

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// IsValidSkillID checks if a skill directory name is a valid slug.
func IsValidSkillID(id string) bool {
	return slugRegex.MatchString(id)
}
