package prompt

const defaultGradeInstruction = "Provide clear and educational explanations suitable for a school student."

var gradeInstructions = map[string]string{
	"1":  "Use very simple words and short sentences a six-year-old can follow, with friendly everyday examples.",
	"2":  "Use simple words and short sentences for a seven-year-old, and explain ideas with toys, animals and games.",
	"3":  "Use easy vocabulary for an eight-year-old, explain one idea at a time and use simple counting or picture examples.",
	"4":  "Use clear, basic language for a nine-year-old and connect new ideas to things they see at home or school.",
	"5":  "Use straightforward language for a ten-year-old, introduce a few new terms and define each one as you go.",
	"6":  "Use middle-school vocabulary for an eleven-year-old, with step-by-step reasoning and relatable examples.",
	"7":  "Use moderately detailed explanations for a twelve-year-old and encourage them to think about why things happen.",
	"8":  "Use grade 8 level language, introduce subject terminology and show how concepts link together.",
	"9":  "Use high-school level language for a ninth grader, with precise terms and worked examples.",
	"10": "Use detailed high-school explanations for a tenth grader, including formulas or evidence where relevant.",
	"11": "Use advanced high-school language for an eleventh grader, covering nuance, exceptions and real-world applications.",
	"12": "Use pre-university language for a twelfth grader, with rigorous reasoning and exam-style depth.",
}

// GradeInstruction returns the tone and complexity guidance for a grade code
// "1" through "12". Any other code yields the generic instruction.
func GradeInstruction(grade string) string {
	if s, ok := gradeInstructions[grade]; ok {
		return s
	}
	return defaultGradeInstruction
}
