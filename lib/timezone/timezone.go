package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Vilnius")
	if err != nil {
		panic(err)
	}
}

// force timezone to be Lithuanian since the target portals publish
// dates in local time and our servers may end up in another region,
// which disturbs date math based on <time.Time>.Year()/Month()/Day()
func Now() time.Time {
	return time.Now().In(Location)
}
