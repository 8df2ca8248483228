// Package resolution maps consumer definitions onto the merged model of a
// provider's supported revisions.
//
// A consumer definition names the provider revision it was written against
// through its revision number. Its types, fields, enum members and
// operations are matched by public name against that revision and then
// carried along the lineages of the history into the merged model, so a
// client written against an old revision keeps resolving after fields are
// renamed or moved.
//
// The usage of a record (input, output or both) decides which optionality
// combinations are accepted:
//
//	usage    provider   accepted consumer      unmapped
//	INPUT    MANDATORY  MANDATORY              no
//	INPUT    OPT_IN     any                    yes
//	INPUT    OPTIONAL   any                    yes
//	OUTPUT   MANDATORY  any                    yes
//	OUTPUT   OPT_IN     any                    yes
//	OUTPUT   OPTIONAL   OPTIONAL               yes
//	IN_OUT   MANDATORY  MANDATORY              no
//	IN_OUT   OPT_IN     any                    yes
//	IN_OUT   OPTIONAL   OPTIONAL               yes
//
// Records that no operation exchanges are checked like IN_OUT records.
//
// Example:
//
//	res, err := resolution.NewResolver().Resolve(history, []int{3, 4}, consumer)
//	if err != nil {
//		var violations *compatibility.ViolationError
//		if errors.As(err, &violations) {
//			// report violations.Violations
//		}
//		return err
//	}
//	fmt.Print(resolution.Printer{}.Print(res))
package resolution
