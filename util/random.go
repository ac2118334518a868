/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2018 Markus Stenberg
 *
 * Created:       Fri Mar 16 13:56:39 2018 mstenber
 * Last modified: Mon Apr  9 14:44:30 2018 mstenber
 * Edit time:     3 min
 *
 */

package util

import (
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"
)

// GetSeededRng returns rng seeded either from SEED environment
// variable, or current time. The seed is always logged so that a
// failing randomized test can be reproduced.
func GetSeededRng() *rand.Rand {
	seed := os.Getenv("SEED")

	seedvalue := time.Now().UnixNano()
	if seed != "" {
		v, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			log.Panic(err)
		}
		seedvalue = v
	}
	log.Printf("Seed: %v (use SEED= to fix)", seedvalue)
	return rand.New(rand.NewSource(seedvalue))
}
