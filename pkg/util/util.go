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

package util

import (
	"encoding/hex"
	"hash/fnv"

	"golang.org/x/exp/constraints"
)

type empty struct {
}

func GetKeys[K comparable, V any](maps ...map[K]V) []K {
	var set = make(map[K]empty)
	for _, m := range maps {
		for k := range m {
			set[k] = empty{}
		}
	}
	var res = make([]K, len(set))
	var i int
	for k := range set {
		res[i] = k
		i++
	}
	return res
}

func CopyMap[K comparable, V any](m map[K]V) map[K]V {
	var res = make(map[K]V, len(m))
	for k, v := range m {
		res[k] = v
	}
	return res
}

func InSlice[T comparable](value T, slice []T) bool {
	for _, s := range slice {
		if s == value {
			return true
		}
	}
	return false
}

func Max[K constraints.Ordered](v1 K, v2 K) K {
	if v1 > v2 {
		return v1
	}
	return v2
}

// HashFnv64 returns the hex-encoded fnv-64a hash of the input. Used for
// deterministic identifiers: equal inputs always map to equal outputs.
func HashFnv64(str string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(str))
	return hex.EncodeToString(h.Sum(nil))
}
