/*
 * Copyright 2025 deskhyper.dev.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mig

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/deskhyper/deskhyper/pkg/util"
)

const (
	Profile1g5gb  ProfileName = "1g.5gb"
	Profile2g10gb ProfileName = "2g.10gb"
	Profile3g20gb ProfileName = "3g.20gb"
	Profile4g20gb ProfileName = "4g.20gb"
	Profile7g40gb ProfileName = "7g.40gb"

	Profile1g10gb ProfileName = "1g.10gb"
	Profile2g20gb ProfileName = "2g.20gb"
	Profile3g40gb ProfileName = "3g.40gb"
	Profile4g40gb ProfileName = "4g.40gb"
	Profile7g80gb ProfileName = "7g.80gb"
)

var (
	migProfileRegex = regexp.MustCompile(`^\d+g\.\d+gb$`)
	migGiRegex      = regexp.MustCompile(`\d+g`)
	migMemoryRegex  = regexp.MustCompile(`\d+gb`)
)

// ProfileName is a vendor MIG profile identifier such as "1g.5gb". The
// numeric prefix is the number of GPU compute slices (gi) the profile
// occupies, the suffix the slice memory size.
type ProfileName string

func (p ProfileName) IsValid() bool {
	return migProfileRegex.MatchString(string(p))
}

func (p ProfileName) String() string {
	return string(p)
}

// GiSlices returns the compute-slice count prefix of the profile
// (e.g. 2 for "2g.10gb").
func (p ProfileName) GiSlices() int {
	asString := migGiRegex.FindString(string(p))
	asString = strings.TrimSuffix(asString, "g")
	asInt, _ := strconv.Atoi(asString)
	return asInt
}

// MemoryGB returns the memory size suffix of the profile in GB.
func (p ProfileName) MemoryGB() int {
	asString := migMemoryRegex.FindString(string(p))
	asString = strings.TrimSuffix(asString, "gb")
	asInt, _ := strconv.Atoi(asString)
	return asInt
}

// ParseProfileName validates and normalizes a raw profile string.
func ParseProfileName(raw string) (ProfileName, error) {
	p := ProfileName(strings.ToLower(strings.TrimSpace(raw)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid MIG profile %q", raw)
	}
	return p, nil
}

type ProfileNameList []ProfileName

func (l ProfileNameList) Contains(p ProfileName) bool {
	return util.InSlice(p, l)
}

// MaxGiSlices returns the largest compute-slice prefix among the profiles.
// It defines the capacity denominator of the device the profiles belong to:
// a profile with gi slices has weight gi / MaxGiSlices.
func (l ProfileNameList) MaxGiSlices() int {
	max := 0
	for _, p := range l {
		max = util.Max(max, p.GiSlices())
	}
	return max
}

// ParseProfileNameList validates every raw profile string in order.
func ParseProfileNameList(raw []string) (ProfileNameList, error) {
	result := make(ProfileNameList, 0, len(raw))
	for _, r := range raw {
		p, err := ParseProfileName(r)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

// Weight returns the capacity fraction the profile occupies on a device
// whose allowed profiles are the ones provided.
func Weight(p ProfileName, allowed ProfileNameList) float64 {
	max := allowed.MaxGiSlices()
	if max == 0 {
		return 0
	}
	return float64(p.GiSlices()) / float64(max)
}
